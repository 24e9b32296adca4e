// Command tagger trains a recurrent morphological tagger and writes the
// test set predictions.
//
// Usage:
//
//	go run ./cmd/tagger -data_dir data -dataset czech_pdt -epochs 10
//
// Every run gets its own log directory under -logdir_root holding the
// arguments (args.yaml), TensorBoard scalars for the train and dev streams,
// the best weights and tagger_competition.txt with one tag per line and an
// empty line after every sentence.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/morphotag/metrics"
	"github.com/born-ml/morphotag/morpho"
	"github.com/born-ml/morphotag/schedule"
	"github.com/born-ml/morphotag/tagger"
	"github.com/born-ml/morphotag/train"
	"github.com/klauspost/cpuid/v2"
)

// Learning rate decay modes.
const (
	decayNone        = "none"
	decayCosine      = "cosine"
	decayExponential = "exponential"
)

const (
	predictionsFile = "tagger_competition.txt"
	weightsFile     = "tagger.safetensors"
)

// args holds the command line. Fields are tagged with their flag names.
type args struct {
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	Seed         int64   `yaml:"seed"`
	Threads      int     `yaml:"threads"`
	DataDir      string  `yaml:"data_dir"`
	Dataset      string  `yaml:"dataset"`
	Analyses     string  `yaml:"analyses"`
	MaxSentences int     `yaml:"max_sentences"`
	RNN          string  `yaml:"rnn"`
	RNNDim       int     `yaml:"rnn_dim"`
	WeDim        int     `yaml:"we_dim"`
	LR           float64 `yaml:"lr"`
	LRFinal      float64 `yaml:"lr_final"`
	Decay        string  `yaml:"decay"`
	Device       string  `yaml:"device"`
	LogdirRoot   string  `yaml:"logdir_root"`
	Verbose      int     `yaml:"verbose"`
}

func parseArgs(fs *flag.FlagSet, argv []string) (*args, error) {
	a := &args{}
	fs.IntVar(&a.BatchSize, "batch_size", 10, "Batch size.")
	fs.IntVar(&a.Epochs, "epochs", 10, "Number of epochs.")
	fs.Int64Var(&a.Seed, "seed", 42, "Random seed.")
	fs.IntVar(&a.Threads, "threads", 1, "Maximum number of threads to use; 0 uses all logical cores.")
	fs.StringVar(&a.DataDir, "data_dir", ".", "Directory holding the dataset and the analyses.")
	fs.StringVar(&a.Dataset, "dataset", "czech_pdt", "Dataset name.")
	fs.StringVar(&a.Analyses, "analyses", "czech_pdt_analyses", "Morphological analyses in data_dir, without extension; empty disables them.")
	fs.IntVar(&a.MaxSentences, "max_sentences", 0, "Maximum number of sentences per split; 0 reads all.")
	fs.StringVar(&a.RNN, "rnn", tagger.LSTM, "RNN cell type (LSTM or GRU).")
	fs.IntVar(&a.RNNDim, "rnn_dim", 64, "RNN hidden size of each direction.")
	fs.IntVar(&a.WeDim, "we_dim", 64, "Word embedding size.")
	fs.Float64Var(&a.LR, "lr", 1e-3, "Initial learning rate.")
	fs.Float64Var(&a.LRFinal, "lr_final", 0, "Final learning rate when decaying.")
	fs.StringVar(&a.Decay, "decay", decayNone, "Learning rate decay: none, cosine or exponential.")
	fs.StringVar(&a.Device, "device", train.DeviceAuto, "Device: auto, cpu or webgpu.")
	fs.StringVar(&a.LogdirRoot, "logdir_root", "logs", "Root of the per-run log directories.")
	fs.IntVar(&a.Verbose, "verbose", train.ProgressOnTerminal, "0 silent, 1 progress, 2 progress on a terminal.")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	switch a.Decay {
	case decayNone, decayCosine, decayExponential:
	default:
		return nil, fmt.Errorf("unknown decay %q", a.Decay)
	}
	return a, nil
}

func main() {
	a, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	threads := a.Threads
	if threads <= 0 {
		threads = cpuid.CPU.LogicalCores
	}
	runtime.GOMAXPROCS(max(threads, 1))
	printDeviceReport(os.Stdout, threads)

	logDir := filepath.Join(a.LogdirRoot, logDirName(filepath.Base(os.Args[0]), time.Now(), flag.CommandLine))
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}
	if err := writeArgs(filepath.Join(logDir, "args.yaml"), a); err != nil {
		log.Fatalf("Failed to save arguments: %v", err)
	}

	if err := runOnDevice(a, logDir); err != nil {
		log.Fatalf("%v", err)
	}
}

func printDeviceReport(w io.Writer, threads int) {
	fmt.Fprintf(w, "CPU: %s (%d physical / %d logical cores, AVX2=%v, AVX512F=%v)\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512F))
	fmt.Fprintf(w, "Threads: %d, accelerator available: %v\n", threads, train.AcceleratorAvailable())
}

// run trains and evaluates the tagger on backend and writes the test set
// predictions to logDir.
func run[B autodiff.BackwardCapable](a *args, backend B, logDir string) error {
	rng := rand.New(rand.NewSource(a.Seed)) //nolint:gosec // Reproducible training, not security.

	ds, err := morpho.Load(a.DataDir, a.Dataset, a.MaxSentences)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	var analyzer *morpho.Analyzer
	if a.Analyses != "" {
		analyzer, err = loadAnalyzer(a.DataDir, a.Analyses)
		if err != nil {
			return err
		}
	}
	fmt.Printf("Dataset %s: %d train, %d dev, %d test sentences, %d forms, %d tags\n",
		a.Dataset, ds.Train.Size(), ds.Dev.Size(), ds.Test.Size(),
		ds.Train.Forms.Vocab.Len(), ds.Train.Tags.Vocab.Len())

	net, err := tagger.New(tagger.Config{
		Words:   ds.Train.Forms.Vocab.Len(),
		Tags:    ds.Train.Tags.Vocab.Len(),
		WordDim: a.WeDim,
		RNNDim:  a.RNNDim,
		RNN:     a.RNN,
	}, backend)
	if err != nil {
		return err
	}
	train.KerasInit[B](rng, net)

	trainData := morpho.NewLoader(ds.Train, a.BatchSize, rng)
	devData := morpho.NewLoader(ds.Dev, a.BatchSize, nil)
	testData := morpho.NewLoader(ds.Test, a.BatchSize, nil)

	adam := optim.NewAdam(net.Parameters(), optim.AdamConfig{
		LR:    float32(a.LR),
		Betas: [2]float32{0.9, 0.999},
		Eps:   1e-7,
	}, backend)
	steps := a.Epochs * ((ds.Train.Size() + a.BatchSize - 1) / max(a.BatchSize, 1))
	var sched schedule.Schedule
	switch a.Decay {
	case decayCosine:
		sched = schedule.NewCosine(adam, steps, float32(a.LRFinal))
	case decayExponential:
		if a.LRFinal <= 0 {
			return fmt.Errorf("exponential decay needs a positive lr_final")
		}
		sched = schedule.NewExponential(adam, steps, a.LRFinal/a.LR)
	}

	model := train.New[B](net, backend)
	defer func() {
		if err := model.Close(); err != nil {
			log.Printf("Failed to close log writers: %v", err)
		}
	}()
	if err := model.Configure(train.Config[B]{
		Optimizer: adam,
		Schedule:  sched,
		Loss:      train.CrossEntropy[B](),
		Metrics:   map[string]metrics.Metric{"accuracy": metrics.NewAccuracy(backend)},
		LogDir:    logDir,
		Device:    a.Device,
	}); err != nil {
		return err
	}

	weights := filepath.Join(logDir, weightsFile)
	saveBest, err := train.SaveBestWeights[B](weights, train.DevPrefix+"accuracy", train.Max)
	if err != nil {
		return err
	}
	if _, err := model.Fit(trainData, a.Epochs, devData, []train.Callback[B]{saveBest}, a.Verbose); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	if a.Epochs > 0 {
		if err := model.LoadWeights(weights, a.Device); err != nil {
			return fmt.Errorf("failed to restore best weights: %w", err)
		}
	}

	predictions, err := model.PredictArrays(testData)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}
	tags, err := tagger.Decode(predictions, ds.Test.Forms.Strings, ds.Train.Tags.Vocab, analyzer)
	if err != nil {
		return err
	}
	return writePredictions(filepath.Join(logDir, predictionsFile), tags)
}

// loadAnalyzer reads name.zip from dir, falling back to name.txt.
func loadAnalyzer(dir, name string) (*morpho.Analyzer, error) {
	path := filepath.Join(dir, name+".zip")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, name+".txt")
	}
	analyzer, err := morpho.LoadAnalyzer(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}
	return analyzer, nil
}

func writePredictions(path string, tags [][]string) error {
	//nolint:gosec // Path lives in the run's log directory.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create predictions file: %w", err)
	}
	if err := tagger.WritePredictions(f, tags); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
