package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CheckpointVersion is incremented when the format changes.
const CheckpointVersion = 1

// ErrCheckpointVersion is returned when loading a checkpoint written by an
// incompatible version.
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// Checkpoint holds the complete generator state needed to resume a run.
type Checkpoint struct {
	Version int `json:"version"`

	RandomSeed uint64 `json:"random_seed"`
	RNGState   []byte `json:"rng_state"` // Marshalled PCG state

	NDim              int        `json:"ndim"`
	Box               [3]float64 `json:"box"`
	Periodic          bool       `json:"periodic"`
	NumberOfParticles int        `json:"number_of_particles"` // Per dimension
	Kernel            string     `json:"kernel"`
	Eta               float64    `json:"eta"`
	Model             string     `json:"model,omitempty"`

	Mass      float64 `json:"mass"`
	TotalMass float64 `json:"total_mass"`

	Iteration              int      `json:"iteration"`
	DeltaRNorm             *float64 `json:"delta_r_norm"` // nil until the first iteration sets it
	RedistributionFraction float64  `json:"redistribution_fraction"`
	Converged              bool     `json:"converged"`
	Termination            string   `json:"termination,omitempty"`

	Particles []ParticleState `json:"particles"`
}

// ParticleState holds one particle's state.
type ParticleState struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	H            float64 `json:"h"`
	Density      float64 `json:"density"`
	ModelDensity float64 `json:"model_density"`
	Displacement float64 `json:"displacement"` // Last displacement over mid
}

// CheckpointName returns the file name used for a checkpoint.
func CheckpointName(basename string, iteration int) string {
	return fmt.Sprintf("%s_%05d.json", basename, iteration)
}

// SaveCheckpoint writes a checkpoint to dir.
// Returns the filepath where it was saved.
func SaveCheckpoint(ck *Checkpoint, dir, basename string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}

	path := filepath.Join(dir, CheckpointName(basename, ck.Iteration))
	data, err := json.MarshalIndent(ck, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads a checkpoint from disk.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var ck Checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if ck.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrCheckpointVersion, ck.Version, CheckpointVersion)
	}
	return &ck, nil
}

// CheckpointWriter saves checkpoints on a background goroutine so the
// iteration loop does not wait on disk. A nil writer discards everything.
type CheckpointWriter struct {
	dir      string
	basename string
	queue    chan *Checkpoint
	done     chan struct{}

	mu       sync.Mutex
	paths    []string
	firstErr error
}

// NewCheckpointWriter starts a writer. Returns nil if dir is empty
// (checkpointing disabled).
func NewCheckpointWriter(dir, basename string) *CheckpointWriter {
	if dir == "" {
		return nil
	}
	w := &CheckpointWriter{
		dir:      dir,
		basename: basename,
		queue:    make(chan *Checkpoint, 2),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *CheckpointWriter) run() {
	defer close(w.done)
	for ck := range w.queue {
		path, err := SaveCheckpoint(ck, w.dir, w.basename)
		w.mu.Lock()
		if err != nil {
			if w.firstErr == nil {
				w.firstErr = err
			}
			w.mu.Unlock()
			slog.Warn("checkpoint_failed", "iteration", ck.Iteration, "error", err)
			continue
		}
		w.paths = append(w.paths, path)
		w.mu.Unlock()
		slog.Info("checkpoint_saved", "iteration", ck.Iteration, "path", path)
	}
}

// Submit queues ck for writing. The caller must not modify ck afterwards.
// Blocks only while two earlier checkpoints are still pending.
func (w *CheckpointWriter) Submit(ck *Checkpoint) {
	if w == nil {
		return
	}
	w.queue <- ck
}

// Paths returns the files written so far.
func (w *CheckpointWriter) Paths() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Close waits for pending checkpoints and returns the first write error.
func (w *CheckpointWriter) Close() error {
	if w == nil {
		return nil
	}
	close(w.queue)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}
