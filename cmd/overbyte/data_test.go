package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/overbyte/internal/config"
)

func TestLoadEmbeddedData(t *testing.T) {
	d, err := loadData(config.Data{})
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	if d.maps.Len() == 0 || len(d.weapons.Names()) == 0 || d.colliders.Len() == 0 {
		t.Fatalf("embedded data is empty: maps=%d weapons=%v colliders=%d",
			d.maps.Len(), d.weapons.Names(), d.colliders.Len())
	}
}

func TestLoadDataOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weapons.json")
	doc := `{"default":"Rifle","weapons":[{"weaponName":"Rifle","damage":40,"distance":300}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	d, err := loadData(config.Data{Weapons: path})
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	if p := d.weapons.Resolve("unknown"); p.Name != "Rifle" || p.Damage != 40 {
		t.Fatalf("fallback = %+v", p)
	}
}

func TestLoadDataMissingFile(t *testing.T) {
	if _, err := loadData(config.Data{Maps: filepath.Join(t.TempDir(), "nope.json")}); err == nil {
		t.Fatal("expected an error for a missing override")
	}
}

func TestCheckRoomSizes(t *testing.T) {
	d, err := loadData(config.Data{})
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}

	cfg := &config.Game{}
	cfg.Play.DefaultMaxPlayers = 2
	cfg.Play.Capacity = map[int]int{1: 2, 2: 4, 3: 6, 4: 8}
	if err := checkRoomSizes(cfg, d); err != nil {
		t.Fatalf("shipped defaults rejected: %v", err)
	}

	cfg.Play.DefaultMaxPlayers = 10
	if err := checkRoomSizes(cfg, d); err == nil {
		t.Fatal("a 10 player default must be rejected")
	}

	cfg.Play.DefaultMaxPlayers = 2
	cfg.Play.Capacity[1] = 3
	if err := checkRoomSizes(cfg, d); err == nil {
		t.Fatal("an odd capacity must be rejected")
	}
}
