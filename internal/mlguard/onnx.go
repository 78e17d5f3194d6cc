package mlguard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/redact"
)

const (
	defaultSeqLen   = 256
	defaultPoolSize = 1
	defaultHarmCut  = 0.5
)

// headsConfig describes the guard model's output heads. Loaded from
// heads.yaml inside the bundle.
type headsConfig struct {
	Families   []string `yaml:"families"`
	Severities []string `yaml:"severities"`
	Techniques []string `yaml:"techniques"`
	HarmLabels []string `yaml:"harm_labels"`
	HarmCutoff float64  `yaml:"harm_cutoff"`
}

// GuardModel runs the multi-head threat classifier through onnxruntime.
// Sessions are pooled on a channel; each Analyze call checks one out, so
// the model is safe for concurrent scans.
type GuardModel struct {
	heads    headsConfig
	seqLen   int
	tok      *wordPieceTokenizer
	sessions chan *guardSession
}

type guardSession struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	binary        *ort.Tensor[float32]
	family        *ort.Tensor[float32]
	severity      *ort.Tensor[float32]
	technique     *ort.Tensor[float32]
	harm          *ort.Tensor[float32]
}

// Options tunes model loading.
type Options struct {
	SeqLen   int
	PoolSize int
}

// LoadGuardModel loads the bundle at dir: guard.onnx, heads.yaml and
// tokenizer/vocab.txt must all be present.
func LoadGuardModel(dir string, opts Options) (*GuardModel, error) {
	if dir == "" {
		return nil, errors.New("bundle dir is empty")
	}
	seqLen := opts.SeqLen
	if seqLen <= 0 {
		seqLen = defaultSeqLen
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	modelPath := filepath.Join(dir, "guard.onnx")
	headsPath := filepath.Join(dir, "heads.yaml")
	vocabPath := filepath.Join(dir, "tokenizer", "vocab.txt")
	for _, p := range []string{modelPath, headsPath, vocabPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("bundle incomplete: %w", err)
		}
	}

	heads, err := loadHeadsConfig(headsPath)
	if err != nil {
		return nil, err
	}

	tok, err := loadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	if lib := sharedLibraryPath(); lib != "" {
		ort.SetSharedLibraryPath(lib)
	} else {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	sessions := make(chan *guardSession, poolSize)
	for i := 0; i < poolSize; i++ {
		gs, err := newGuardSession(modelPath, seqLen, heads)
		if err != nil {
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, poolSize, err)
		}
		sessions <- gs
	}

	redact.Logf("mlguard: loaded bundle dir=%s families=%d techniques=%d harm_labels=%d pool=%d",
		dir, len(heads.Families), len(heads.Techniques), len(heads.HarmLabels), poolSize)

	return &GuardModel{heads: heads, seqLen: seqLen, tok: tok, sessions: sessions}, nil
}

func loadHeadsConfig(path string) (headsConfig, error) {
	var heads headsConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return heads, fmt.Errorf("read heads config: %w", err)
	}
	if err := yaml.Unmarshal(data, &heads); err != nil {
		return heads, fmt.Errorf("parse heads config: %w", err)
	}
	if len(heads.Families) == 0 {
		return heads, errors.New("heads config: families empty")
	}
	if len(heads.Severities) == 0 {
		heads.Severities = []string{"info", "low", "medium", "high", "critical"}
	}
	if heads.HarmCutoff <= 0 {
		heads.HarmCutoff = defaultHarmCut
	}
	return heads, nil
}

func newGuardSession(modelPath string, seqLen int, heads headsConfig) (*guardSession, error) {
	inShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		return nil, err
	}
	attn, err := ort.NewEmptyTensor[int64](inShape)
	if err != nil {
		return nil, err
	}

	mk := func(n int) (*ort.Tensor[float32], error) {
		return ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n)))
	}
	binary, err := mk(2)
	if err != nil {
		return nil, err
	}
	family, err := mk(len(heads.Families))
	if err != nil {
		return nil, err
	}
	severity, err := mk(len(heads.Severities))
	if err != nil {
		return nil, err
	}
	technique, err := mk(max(len(heads.Techniques), 1))
	if err != nil {
		return nil, err
	}
	harm, err := mk(max(len(heads.HarmLabels), 1))
	if err != nil {
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"binary_logits", "family_logits", "severity_logits", "technique_logits", "harm_logits"},
		[]ort.Value{inputIDs, attn},
		[]ort.Value{binary, family, severity, technique, harm},
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &guardSession{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attn,
		binary:        binary,
		family:        family,
		severity:      severity,
		technique:     technique,
		harm:          harm,
	}, nil
}

// Analyze tokenizes the text, runs one pooled session, and converts the
// five head outputs into an Analysis. The l1 result is accepted per the
// capability contract but the model does not condition on it.
func (m *GuardModel) Analyze(ctx context.Context, text string, l1 *detection.L1Result) (*Analysis, error) {
	if m == nil {
		return nil, errors.New("guard model not initialized")
	}
	start := time.Now()

	var gs *guardSession
	select {
	case gs = <-m.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.sessions <- gs }()

	ids, attn := m.tok.encode(text, m.seqLen)
	copy(gs.inputIDs.GetData(), ids)
	copy(gs.attentionMask.GetData(), attn)

	if err := gs.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	heads := m.decodeHeads(gs)
	pred := Prediction{
		ThreatType: heads.Family,
		Confidence: heads.BinaryThreat,
		Heads:      heads,
	}

	return &Analysis{
		Predictions:    []Prediction{pred},
		ProcessingTime: time.Since(start),
	}, nil
}

func (m *GuardModel) decodeHeads(gs *guardSession) HeadOutputs {
	var out HeadOutputs

	if probs := softmax(gs.binary.GetData()); len(probs) == 2 {
		out.BinaryThreat = probs[1]
	}

	if probs := softmax(gs.family.GetData()); len(probs) > 0 {
		idx, conf := argmax(probs)
		out.Family = labelAt(m.heads.Families, idx)
		out.FamilyConfidence = conf
	}

	if probs := softmax(gs.severity.GetData()); len(probs) > 0 {
		idx, conf := argmax(probs)
		if sev, ok := detection.ParseSeverity(labelAt(m.heads.Severities, idx)); ok {
			out.Severity = sev
		}
		out.SeverityConfidence = conf
	}

	if len(m.heads.Techniques) > 0 {
		if probs := softmax(gs.technique.GetData()); len(probs) > 0 {
			idx, conf := argmax(probs)
			out.Technique = labelAt(m.heads.Techniques, idx)
			out.TechniqueConfidence = conf
		}
	}

	if len(m.heads.HarmLabels) > 0 {
		raw := gs.harm.GetData()
		for i, logit := range raw {
			p := sigmoid(float64(logit))
			if p > out.HarmMax {
				out.HarmMax = p
			}
			if p >= m.heads.HarmCutoff {
				out.HarmLabels = append(out.HarmLabels, labelAt(m.heads.HarmLabels, i))
			}
		}
	}

	return out
}

// Close releases pooled sessions.
func (m *GuardModel) Close() {
	if m == nil {
		return
	}
	for i := 0; i < cap(m.sessions); i++ {
		gs := <-m.sessions
		_ = gs.session.Destroy()
	}
}

func sharedLibraryPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func argmax(probs []float64) (int, float64) {
	best, bestP := 0, probs[0]
	for i, p := range probs[1:] {
		if p > bestP {
			best, bestP = i+1, p
		}
	}
	return best, bestP
}

func labelAt(labels []string, idx int) string {
	if idx < 0 || idx >= len(labels) {
		return "unknown"
	}
	return labels[idx]
}
