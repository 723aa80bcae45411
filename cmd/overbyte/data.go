package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/overbyte/assets"
	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/geometry"
	"github.com/woozymasta/overbyte/internal/maps"
	"github.com/woozymasta/overbyte/internal/weapons"
)

// gameData is the static world the rooms and the router share.
type gameData struct {
	maps      *maps.List
	weapons   *weapons.Catalog
	colliders *geometry.Index
}

// loadData reads each document from its override path, or from the embedded
// defaults when no path is set.
func loadData(cfg config.Data) (*gameData, error) {
	var d gameData

	err := withDocument(cfg.Maps, "data/maps.json", func(r io.Reader) (err error) {
		d.maps, err = maps.Load(r)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("maps: %w", err)
	}

	err = withDocument(cfg.Weapons, "data/weapons.json", func(r io.Reader) (err error) {
		d.weapons, err = weapons.Load(r)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("weapons: %w", err)
	}

	err = withDocument(cfg.Colliders, "data/colliders.json", func(r io.Reader) (err error) {
		d.colliders, err = geometry.Load(r)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("colliders: %w", err)
	}

	return &d, nil
}

func withDocument(path, embedded string, fn func(io.Reader) error) error {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		return fn(f)
	}

	body, err := assets.ReadFile(embedded)
	if err != nil {
		return err
	}
	return fn(bytes.NewReader(body))
}
