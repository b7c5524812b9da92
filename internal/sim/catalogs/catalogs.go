package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Model types.
const (
	TypeStatic    = "static"
	TypeDynamic   = "dynamic"
	TypeCharacter = "character"
)

type Catalogs struct {
	Models ModelCatalog
	Assets AssetCatalog
}

type ModelCatalog struct {
	ByID   map[string]ModelDef
	Digest string
}

// ModelDef is the resolved model description handed over by the asset pipeline.
type ModelDef struct {
	ID         string          `json:"id"`
	File       string          `json:"file,omitempty"`
	Type       string          `json:"type"`
	Physics    PhysicsDef      `json:"physics"`
	Animations AnimationDef    `json:"animations"`
	Collision  []CollisionNode `json:"collision,omitempty"`
}

type PhysicsDef struct {
	Mass            float64 `json:"mass"`
	Speed           float64 `json:"speed"`
	RotationalSpeed float64 `json:"rotational_speed"`
	JumpForce       float64 `json:"jump_force"`
}

type AnimationDef struct {
	Default   string    `json:"default"`
	SwapSpeed float64   `json:"swap_speed"`
	Attack    []string  `json:"attack,omitempty"`
	Clips     []ClipDef `json:"clips,omitempty"`
}

type ClipDef struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
}

// CollisionNode is an authored child node tagged as a collision volume.
// Vertices are in node-local space before scale and rotation.
type CollisionNode struct {
	Name         string          `json:"name"`
	Shape        string          `json:"shape"`
	Position     [3]float64      `json:"position"`
	Quaternion   [4]float64      `json:"quaternion"` // x,y,z,w
	Scale        [3]float64      `json:"scale,omitempty"`
	Vertices     [][3]float64    `json:"vertices,omitempty"`
	PreserveMesh bool            `json:"preserve_mesh,omitempty"`
	MaterialType string          `json:"material_type,omitempty"`
	Children     []CollisionNode `json:"children,omitempty"`
}

type AssetCatalog struct {
	Place       string       `json:"place,omitempty"`
	Placements  []Placement  `json:"placements"`
	SpawnPoints [][3]float64 `json:"spawn_points,omitempty"`
	Digest      string       `json:"-"`
}

// Placement puts one model instance into the scene.
type Placement struct {
	Name      string     `json:"name"`
	Reference string     `json:"reference"`
	Username  string     `json:"username,omitempty"`
	Player    bool       `json:"player,omitempty"`
	Hide      bool       `json:"hide,omitempty"`
	StartPos  [3]float64 `json:"start_pos"`
	StartRot  [3]float64 `json:"start_rot"` // degrees
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadModels(filepath.Join(configDir, "models"), &c.Models); err != nil {
		return nil, err
	}
	if err := loadAssets(filepath.Join(configDir, "assets.json"), &c.Assets); err != nil {
		return nil, err
	}
	for _, p := range c.Assets.Placements {
		if _, ok := c.Models.ByID[p.Reference]; !ok {
			return nil, fmt.Errorf("assets.json: placement %q references unknown model %q", p.Name, p.Reference)
		}
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadModels(dir string, out *ModelCatalog) error {
	out.ByID = map[string]ModelDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var m ModelDef
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("model %s: %w", filepath.Base(p), err)
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", filepath.Base(p), err)
		}
		out.ByID[m.ID] = m
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func loadAssets(path string, out *AssetCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// A scene without placements is allowed (tests, headless tools).
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("assets.json: %w", err)
	}
	out.Digest = sha256Hex(raw)
	seen := map[string]bool{}
	for _, p := range out.Placements {
		if p.Name == "" {
			return fmt.Errorf("assets.json: placement missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("assets.json: duplicate placement %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func (m ModelDef) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch m.Type {
	case TypeStatic, TypeDynamic, TypeCharacter:
	default:
		return fmt.Errorf("unknown type %q", m.Type)
	}
	if m.Physics.Mass < 0 {
		return fmt.Errorf("negative mass")
	}
	names := map[string]bool{}
	for _, c := range m.Animations.Clips {
		if c.Name == "" || c.Duration < 0 {
			return fmt.Errorf("bad clip %+v", c)
		}
		names[c.Name] = true
	}
	if len(m.Animations.Clips) > 0 && m.Animations.Default != "" && !names[m.Animations.Default] {
		return fmt.Errorf("default animation %q has no clip", m.Animations.Default)
	}
	return nil
}

// Clip returns the clip definition by name.
func (m ModelDef) Clip(name string) (ClipDef, bool) {
	for _, c := range m.Animations.Clips {
		if c.Name == name {
			return c, true
		}
	}
	return ClipDef{}, false
}
