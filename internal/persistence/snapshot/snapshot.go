package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Session string `json:"session"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the full simulation state at the end of a tick.
type SnapshotV1 struct {
	Header Header `json:"header"`

	FrameRateHz   int     `json:"frame_rate_hz"`
	CatalogDigest string  `json:"catalog_digest"`
	Azimuth       float64 `json:"azimuth"`
	Heading       float64 `json:"heading"`

	Bodies   []BodyV1    `json:"bodies"`
	Entities []EntityV1  `json:"entities"`
	Controls *ControlsV1 `json:"controls,omitempty"`
}

type BodyV1 struct {
	ID       uint64     `json:"id"`
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Mass     float64    `json:"mass"`
	Pos      [3]float64 `json:"pos"`
	Rot      [4]float64 `json:"rot"` // x,y,z,w
	Vel      [3]float64 `json:"vel"`
	AngVel   [3]float64 `json:"ang_vel"`
	Occluder bool       `json:"occluder,omitempty"`
}

type EntityV1 struct {
	Name      string     `json:"name"`
	Model     string     `json:"model"`
	Username  string     `json:"username,omitempty"`
	Local     bool       `json:"local,omitempty"`
	Remote    bool       `json:"remote,omitempty"`
	VisualPos [3]float64 `json:"visual_pos"`
	VisualRot [4]float64 `json:"visual_rot"`
	Hidden    []string   `json:"hidden,omitempty"`

	Action      string     `json:"action,omitempty"`
	Queued      string     `json:"queued,omitempty"`
	QueuedIn    float64    `json:"queued_in,omitempty"`
	Locked      bool       `json:"locked,omitempty"`
	ActionTimes []ActionV1 `json:"actions,omitempty"`
}

type ActionV1 struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Time   float64 `json:"time"`
}

type ControlsV1 struct {
	Move       string `json:"move,omitempty"`
	Turn       string `json:"turn,omitempty"`
	Mode       string `json:"mode"`
	Jump       bool   `json:"jump,omitempty"`
	Attacking  bool   `json:"attacking,omitempty"`
	AttackMode string `json:"attack_mode,omitempty"`
	Action     string `json:"action"`
	Freeze     bool   `json:"freeze,omitempty"`
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, all zstd-compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob payload repeats the header.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
