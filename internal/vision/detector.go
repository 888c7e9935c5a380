package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Box is one detected face bounding box in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Expand grows the box by a margin on every side, clamping the origin at
// zero. Width and height clamping against the image bounds is left to the
// crop filter.
func (b Box) Expand(margin int) Box {
	x := b.X - margin
	y := b.Y - margin
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return Box{X: x, Y: y, W: b.W + 2*margin, H: b.H + 2*margin}
}

// Detector finds faces in a single image. The detection algorithm itself is
// an external collaborator; implementations only drive it.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]Box, error)
}

// CommandDetector shells out to an external detector binary that takes an
// image path and prints a JSON array of bounding boxes on stdout.
type CommandDetector struct {
	binPath string
}

func NewCommandDetector(command string) (*CommandDetector, error) {
	binPath, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("face detector %q not found in PATH: %w", command, err)
	}
	return &CommandDetector{binPath: binPath}, nil
}

func (d *CommandDetector) Detect(ctx context.Context, imagePath string) ([]Box, error) {
	cmd := exec.CommandContext(ctx, d.binPath, imagePath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("face detection failed: %w (%s)", err, stderr.String())
	}

	var boxes []Box
	if err := json.Unmarshal(stdout.Bytes(), &boxes); err != nil {
		return nil, fmt.Errorf("failed to parse detector output: %w", err)
	}
	return boxes, nil
}
