package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoad_ModelsAndAssets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "models", "knight.json"), `{
	  "id":"knight","type":"character",
	  "physics":{"mass":60,"speed":2,"rotational_speed":180,"jump_force":300},
	  "animations":{"default":"idle","swap_speed":0.3,"attack":["attack-1","attack-2"],
	    "clips":[{"name":"idle","duration":2},{"name":"jump","duration":1}]},
	  "collision":[{"name":"body","shape":"cylinder","position":[0,0.9,0],"quaternion":[0,0,0,1],
	    "vertices":[[-0.3,-0.9,-0.3],[0.3,0.9,0.3]]}]
	}`)
	writeFile(t, filepath.Join(dir, "models", "arena.json"), `{"id":"arena","type":"static"}`)
	writeFile(t, filepath.Join(dir, "assets.json"), `{
	  "placements":[
	    {"name":"arena","reference":"arena"},
	    {"name":"alice","reference":"knight","username":"alice","player":true,"start_pos":[0,1,0]}
	  ]
	}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Models.ByID) != 2 || c.Models.Digest == "" || c.Assets.Digest == "" {
		t.Fatalf("unexpected catalogs: %+v", c.Models)
	}
	k := c.Models.ByID["knight"]
	if k.Physics.Speed != 2 || len(k.Animations.Attack) != 2 || len(k.Collision) != 1 {
		t.Fatalf("knight decoded wrong: %+v", k)
	}
	if clip, ok := k.Clip("jump"); !ok || clip.Duration != 1 {
		t.Fatalf("clip lookup: %+v %v", clip, ok)
	}
	if !c.Assets.Placements[1].Player {
		t.Fatalf("player flag lost")
	}
}

func TestLoad_RejectsUnknownReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "models", "arena.json"), `{"id":"arena","type":"static"}`)
	writeFile(t, filepath.Join(dir, "assets.json"), `{"placements":[{"name":"x","reference":"ghost"}]}`)
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected unknown model error, got %v", err)
	}
}

func TestModelValidate(t *testing.T) {
	bad := []ModelDef{
		{},
		{ID: "a", Type: "vehicle"},
		{ID: "a", Type: TypeDynamic, Physics: PhysicsDef{Mass: -1}},
		{ID: "a", Type: TypeCharacter, Animations: AnimationDef{Default: "idle", Clips: []ClipDef{{Name: "run", Duration: 1}}}},
	}
	for i, m := range bad {
		if err := m.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
