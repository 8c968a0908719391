// Package project defines the project data model and the container
// document persisted to the envelope store.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrEmptyName         = errors.New("project name cannot be empty")
	ErrMissingName       = errors.New("project spec is missing 'name'")
	ErrMissingGroup      = errors.New("project spec is missing 'linkedGroup'")
	ErrMissingGroupName  = errors.New("linked group is missing 'name'")
	ErrMissingGroupID    = errors.New("linked group is missing 'id'")
	ErrInvalidMetadata   = errors.New("project metadata is not a JSON object")
	ErrProjectNotPresent = errors.New("project not present in container")
)

// emptyMetadata is stored when a spec carries no metadata.
var emptyMetadata = json.RawMessage(`{}`)

// Project is a named unit tracked by the registry, bound to an
// authorizing group. Name is the identity and never changes after
// creation; group binding and metadata are mutated through explicit
// operations only.
type Project struct {
	// Name uniquely identifies the project within its system.
	Name string `json:"name"`

	// GroupName is the human-readable name of the linked group.
	GroupName string `json:"groupName"`

	// GroupID identifies the linked group. Members of this group may
	// mutate the project.
	GroupID string `json:"groupIdentifier"`

	// Metadata is an opaque, caller-defined JSON object. The registry
	// never interprets it; optimistic concurrency compares it byte for
	// byte.
	Metadata json.RawMessage `json:"metadata"`
}

// View is the request-scoped representation returned by list and get.
// IsMember is computed per requester and never persisted.
type View struct {
	Project
	IsMember bool `json:"is_member"`
}

// spec mirrors the inbound creation payload.
type spec struct {
	Name        *string         `json:"name"`
	LinkedGroup *linkedGroup    `json:"linkedGroup"`
	Metadata    json.RawMessage `json:"metadata"`
}

type linkedGroup struct {
	Name *string `json:"name"`
	ID   *string `json:"id"`
}

// FromSpec parses an inbound creation payload into a Project.
// A missing metadata field defaults to an empty object.
func FromSpec(raw []byte) (*Project, error) {
	var s spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse project spec: %w", err)
	}
	if s.Name == nil {
		return nil, ErrMissingName
	}
	if *s.Name == "" {
		return nil, ErrEmptyName
	}
	if s.LinkedGroup == nil {
		return nil, ErrMissingGroup
	}
	if s.LinkedGroup.Name == nil {
		return nil, ErrMissingGroupName
	}
	if s.LinkedGroup.ID == nil {
		return nil, ErrMissingGroupID
	}

	metadata := emptyMetadata
	if len(s.Metadata) > 0 && string(s.Metadata) != "null" {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(s.Metadata, &obj); err != nil {
			return nil, ErrInvalidMetadata
		}
		metadata = s.Metadata
	}

	return &Project{
		Name:      *s.Name,
		GroupName: *s.LinkedGroup.Name,
		GroupID:   *s.LinkedGroup.ID,
		Metadata:  metadata,
	}, nil
}

// ChangeGroup rebinds the project to a new group. The name stays fixed.
func (p *Project) ChangeGroup(groupID, groupName string) {
	p.GroupID = groupID
	p.GroupName = groupName
}

// ChangeMetadata replaces the metadata blob.
func (p *Project) ChangeMetadata(metadata json.RawMessage) {
	p.Metadata = metadata
}

// MetadataEquals reports byte-exact equality with the stored metadata.
func (p *Project) MetadataEquals(other []byte) bool {
	return bytes.Equal(p.Metadata, other)
}
