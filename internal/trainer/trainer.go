// Package trainer applies a fine-tuning method to a model and runs the
// epoch/batch optimisation loop.
package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/tunebench/internal/experiment"
	"github.com/samcharles93/tunebench/internal/logger"
	"github.com/samcharles93/tunebench/internal/model"
)

// DefaultSeed seeds shuffling and adapter initialisation when none is given.
const DefaultSeed = 42

// LogEntry is one line of the loss history.
type LogEntry struct {
	Step         int     `json:"step"`
	Epoch        float64 `json:"epoch"`
	Loss         float64 `json:"loss"`
	LearningRate float64 `json:"learning_rate"`
}

// State summarises a finished run. It is written as trainer_state.json.
type State struct {
	RunID            string     `json:"run_id"`
	Model            string     `json:"model"`
	Method           string     `json:"method"`
	GlobalStep       int        `json:"global_step"`
	Epoch            float64    `json:"epoch"`
	NumTrainEpochs   int        `json:"num_train_epochs"`
	TrainBatchSize   int        `json:"train_batch_size"`
	LoggingSteps     int        `json:"logging_steps"`
	NumExamples      int        `json:"num_examples"`
	TrainableParams  int        `json:"trainable_params"`
	TotalParams      int        `json:"total_params"`
	TrainLoss        float64    `json:"train_loss"`
	TrainRuntime     float64    `json:"train_runtime"`
	SamplesPerSecond float64    `json:"train_samples_per_second"`
	LogHistory       []LogEntry `json:"log_history"`
}

// Trainer runs one optimisation per (model, method) pair.
type Trainer struct {
	// Seed drives the per-epoch shuffle and adapter initialisation.
	Seed uint64
	// Now defaults to time.Now.
	Now func() time.Time
}

// seeder is implemented by models whose dropout can be reseeded.
type seeder interface {
	SetSeed(seed uint64)
}

// ApplyMethod sets the trainable parameters of m according to method.
func ApplyMethod(m model.Trainable, method experiment.Method, seed uint64) error {
	switch v := method.(type) {
	case experiment.Freeze:
		m.FreezeAll()
	case experiment.FullFinetune:
		m.UnfreezeAll()
	case experiment.LoRA:
		return m.InjectLoRA(model.LoRAConfig{
			Rank:          v.Rank,
			Alpha:         v.Alpha,
			Dropout:       v.Dropout,
			TargetModules: v.TargetModules,
			Seed:          seed,
		})
	default:
		return fmt.Errorf("unsupported method %T", method)
	}
	return nil
}

// Train applies mc's method to h and optimises it on examples.
func (t Trainer) Train(ctx context.Context, h model.Handle, examples []model.Example, mc experiment.MethodConfig) (State, error) {
	log := logger.FromContext(ctx).Named("trainer").With("model", h.Name(), "method", mc.Name)
	op := fmt.Sprintf("train %s/%s", h.Name(), mc.Name)
	now := t.Now
	if now == nil {
		now = time.Now
	}
	seed := t.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	if len(examples) == 0 {
		return State{}, experiment.Failf(experiment.ErrTraining, op, "no training examples")
	}
	if err := ApplyMethod(h, mc.Method, seed); err != nil {
		log.Error("apply method failed", "error", err)
		return State{}, experiment.Fail(experiment.ErrTraining, op, err)
	}
	if s, ok := h.(seeder); ok {
		s.SetSeed(seed)
	}
	trainable, total := h.ParamCount()

	st := State{
		RunID:           uuid.NewString(),
		Model:           h.Name(),
		Method:          mc.Name,
		NumTrainEpochs:  mc.Epochs,
		TrainBatchSize:  mc.BatchSize,
		LoggingSteps:    mc.LoggingSteps,
		NumExamples:     len(examples),
		TrainableParams: trainable,
		TotalParams:     total,
		LogHistory:      []LogEntry{},
	}
	stepsPerEpoch := (len(examples) + mc.BatchSize - 1) / mc.BatchSize
	log.Info("training started",
		"method_type", mc.Method.Kind(),
		"examples", len(examples),
		"epochs", mc.Epochs,
		"batch_size", mc.BatchSize,
		"steps", stepsPerEpoch*mc.Epochs,
		"trainable_params", trainable,
		"total_params", total,
		"trainable_pct", fmt.Sprintf("%.4f", 100*float64(trainable)/float64(max(total, 1))),
	)

	h.SetTraining(true)
	defer h.SetTraining(false)

	start := now()
	lr := float32(mc.LearningRate)
	var lossSum, windowSum float64
	windowSteps := 0
	order := make([]int, len(examples))
	batch := make([]model.Example, 0, mc.BatchSize)
	for epoch := range mc.Epochs {
		for i := range order {
			order[i] = i
		}
		rng := rand.New(rand.NewPCG(seed, uint64(epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for b := 0; b < len(order); b += mc.BatchSize {
			if err := ctx.Err(); err != nil {
				log.Warn("training interrupted", "step", st.GlobalStep, "error", err)
				return st, experiment.Fail(experiment.ErrTraining, op, err)
			}
			batch = batch[:0]
			for _, idx := range order[b:min(b+mc.BatchSize, len(order))] {
				batch = append(batch, examples[idx])
			}
			loss, err := h.TrainStep(batch, lr)
			if err != nil {
				log.Error("training step failed", "step", st.GlobalStep+1, "error", err)
				return st, experiment.Fail(experiment.ErrTraining, op, fmt.Errorf("step %d: %w", st.GlobalStep+1, err))
			}
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return st, experiment.Failf(experiment.ErrTraining, op, "step %d: non-finite loss %v", st.GlobalStep+1, loss)
			}
			st.GlobalStep++
			lossSum += loss
			windowSum += loss
			windowSteps++

			st.Epoch = float64(epoch) + float64(b/mc.BatchSize+1)/float64(stepsPerEpoch)
			if st.GlobalStep%mc.LoggingSteps == 0 {
				entry := LogEntry{
					Step:         st.GlobalStep,
					Epoch:        round4(st.Epoch),
					Loss:         round4(windowSum / float64(windowSteps)),
					LearningRate: mc.LearningRate,
				}
				st.LogHistory = append(st.LogHistory, entry)
				log.Info("step", "step", entry.Step, "epoch", entry.Epoch, "loss", entry.Loss, "learning_rate", entry.LearningRate)
				windowSum, windowSteps = 0, 0
			}
		}
	}

	runtime := now().Sub(start).Seconds()
	st.TrainLoss = lossSum / float64(st.GlobalStep)
	st.TrainRuntime = round4(runtime)
	if runtime > 0 {
		st.SamplesPerSecond = round4(float64(len(examples)*mc.Epochs) / runtime)
	}
	log.Info("training finished",
		"global_step", st.GlobalStep,
		"train_loss", st.TrainLoss,
		"train_runtime", st.TrainRuntime,
		"train_samples_per_second", st.SamplesPerSecond,
	)
	return st, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
