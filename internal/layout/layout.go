// Package layout seeds a server from a declarative HCL description of
// the house: nested room blocks holding files and formulas.
//
//	room "hallway" {
//	  file "switch" { value = "off" }
//
//	  room "closet" {
//	    file "raw-state"  { value = "" }
//	    formula "state"   { source = `./raw-state :: "off"` }
//	  }
//	}
package layout

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hearthgrid/hearth/api"
)

type Layout struct {
	Rooms []Room `hcl:"room,block"`
}

type Room struct {
	Name     string    `hcl:"name,label"`
	Files    []File    `hcl:"file,block"`
	Formulas []Formula `hcl:"formula,block"`
	Rooms    []Room    `hcl:"room,block"`
}

type File struct {
	Name  string `hcl:"name,label"`
	Value string `hcl:"value,optional"`
}

type Formula struct {
	Name   string `hcl:"name,label"`
	Source string `hcl:"source"`
}

// Load parses a layout file.
func Load(path string) (*Layout, error) {
	var l Layout
	if err := hclsimple.DecodeFile(path, nil, &l); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	return &l, nil
}

// Target is the slice of the client surface Apply needs. *client.Client
// satisfies it.
type Target interface {
	CreateDirectory(ctx context.Context, parentPath, name string) error
	CreateFile(ctx context.Context, parentPath, name, value string) ([]api.PathValue, error)
	CreateFormula(ctx context.Context, parentPath, name, source string) ([]api.PathValue, error)
}

// Apply creates every room, file, and formula against t. Nodes that
// already exist are left alone so a layout can be re-applied to a
// running server.
func (l *Layout) Apply(ctx context.Context, t Target) error {
	for _, room := range l.Rooms {
		if err := applyRoom(ctx, t, "/", room); err != nil {
			return err
		}
	}
	return nil
}

func applyRoom(ctx context.Context, t Target, parent string, room Room) error {
	if err := ignoreExisting(t.CreateDirectory(ctx, parent, room.Name)); err != nil {
		return fmt.Errorf("create room %s under %s: %w", room.Name, parent, err)
	}
	self := childPath(parent, room.Name)

	for _, f := range room.Files {
		_, err := t.CreateFile(ctx, self, f.Name, f.Value)
		if err := ignoreExisting(err); err != nil {
			return fmt.Errorf("create file %s under %s: %w", f.Name, self, err)
		}
	}
	for _, f := range room.Formulas {
		_, err := t.CreateFormula(ctx, self, f.Name, f.Source)
		if err := ignoreExisting(err); err != nil {
			return fmt.Errorf("create formula %s under %s: %w", f.Name, self, err)
		}
	}
	for _, sub := range room.Rooms {
		if err := applyRoom(ctx, t, self, sub); err != nil {
			return err
		}
	}
	return nil
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func ignoreExisting(err error) error {
	if err == nil {
		return nil
	}
	var remote *api.RemoteError
	if errors.As(err, &remote) && remote.Name == api.ErrNameAlreadyExists {
		glog.V(1).Infof("layout: %s, keeping current node", remote.Context)
		return nil
	}
	return err
}
