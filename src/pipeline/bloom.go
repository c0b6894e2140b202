package pipeline

/*
 this part of the pipeline reads sequence files, builds one bloom filter per file and collects them in input order
*/

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/will-rowe/bigsi/src/bigsi"
	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/config"
	"github.com/will-rowe/bigsi/src/kmers"
	"github.com/will-rowe/bigsi/src/seqio"
)

// Sample is a sequence file on its way to becoming a bloom filter
type Sample struct {
	Index     int
	Name      string
	Path      string
	Seqs      [][]byte
	Bloom     *bloom.BloomFilter
	NumKmers  int
	BloomPath string
}

// SequenceReader is a pipeline process that reads one sample per sequence file
type SequenceReader struct {
	info   *Info
	input  []string
	output chan *Sample
}

// NewSequenceReader is the constructor
func NewSequenceReader(info *Info) *SequenceReader {
	return &SequenceReader{info: info, output: make(chan *Sample, BUFFERSIZE)}
}

// Connect is the method to connect the SequenceReader to some sequence files
func (proc *SequenceReader) Connect(input []string) {
	proc.input = input
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *SequenceReader) Run() {
	defer close(proc.output)
	for i, path := range proc.input {
		if proc.info.Err() != nil {
			return
		}
		seqs, err := seqio.ReadFile(path, proc.info.MinQual)
		if err != nil {
			proc.info.Fail(err)
			return
		}
		sample := &Sample{Index: i, Name: seqio.SampleName(path), Path: path, Seqs: make([][]byte, len(seqs))}
		for j, seq := range seqs {
			sample.Seqs[j] = seq.Seq
		}
		log.Debugf("read %d sequences from %v", len(seqs), path)
		proc.output <- sample
	}
}

// BloomBuilder is a pipeline process that builds a bloom filter for each sample
type BloomBuilder struct {
	info   *Info
	input  chan *Sample
	output chan *Sample
}

// NewBloomBuilder is the constructor
func NewBloomBuilder(info *Info) *BloomBuilder {
	return &BloomBuilder{info: info, output: make(chan *Sample, BUFFERSIZE)}
}

// Connect is the method to connect the BloomBuilder to the output of a SequenceReader
func (proc *BloomBuilder) Connect(previous *SequenceReader) {
	proc.input = previous.output
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *BloomBuilder) Run() {
	defer close(proc.output)
	numWorkers := proc.info.NumProc
	if numWorkers < 1 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for n := 0; n < numWorkers; n++ {
		go func() {
			defer wg.Done()
			for sample := range proc.input {
				if proc.info.Err() != nil {
					continue
				}
				bf, err := bigsi.Bloom(proc.info.Config, sample.Seqs...)
				if err != nil {
					proc.info.Fail(errors.Wrapf(err, "could not build bloom filter for %v", sample.Path))
					continue
				}
				sample.Bloom = bf
				if proc.info.Estimate {
					for _, seq := range sample.Seqs {
						n, err := kmers.EstimateCardinality(seq, proc.info.Config.K)
						if err != nil {
							continue
						}
						sample.NumKmers += n
					}
				}
				sample.Seqs = nil
				proc.output <- sample
			}
		}()
	}
	wg.Wait()
}

// BloomSink is the final pipeline process, it writes bloom filters to the output directory if one is set
// and keeps the samples in input order
type BloomSink struct {
	info    *Info
	input   chan *Sample
	total   int
	samples []*Sample
}

// NewBloomSink is the constructor, total sizes the progress bar
func NewBloomSink(info *Info, total int) *BloomSink {
	return &BloomSink{info: info, total: total}
}

// Connect is the method to connect the BloomSink to the output of a BloomBuilder
func (proc *BloomSink) Connect(previous *BloomBuilder) {
	proc.input = previous.output
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *BloomSink) Run() {
	var pbs *mpb.Progress
	var bar *mpb.Bar
	if proc.info.Progress != nil {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(proc.info.Progress))
		bar = pbs.AddBar(int64(proc.total),
			mpb.PrependDecorators(
				decor.Name("bloom filters: ", decor.WC{W: len("bloom filters: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Elapsed(decor.ET_STYLE_GO),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}
	for sample := range proc.input {
		if bar != nil {
			bar.Increment()
		}
		if proc.info.Err() != nil {
			continue
		}
		if proc.info.OutDir != "" {
			sample.BloomPath = filepath.Join(proc.info.OutDir, sample.Name+".bloom")
			if err := sample.Bloom.Dump(sample.BloomPath); err != nil {
				proc.info.Fail(err)
				continue
			}
		}
		if proc.info.Estimate {
			log.Infof("%v: ~%d distinct k-mers, estimated false positive rate %.3g", sample.Name, sample.NumKmers,
				bloom.EstimateFalsePositiveRate(proc.info.Config.M, proc.info.Config.H, uint(sample.NumKmers)))
		}
		proc.samples = append(proc.samples, sample)
	}
	if pbs != nil {
		if proc.info.Err() != nil {
			bar.Abort(false)
		}
		pbs.Wait()
	}
	sort.Slice(proc.samples, func(i, j int) bool {
		return proc.samples[i].Index < proc.samples[j].Index
	})
}

// Samples returns the collected samples in input order
func (proc *BloomSink) Samples() []*Sample {
	return proc.samples
}

// Manifest describes the collected samples
func (proc *BloomSink) Manifest() *Manifest {
	manifest := &Manifest{
		Version:    proc.info.Version,
		K:          proc.info.Config.K,
		M:          proc.info.Config.M,
		H:          proc.info.Config.H,
		HashFamily: proc.info.Config.HashFamily,
		Samples:    make([]ManifestEntry, len(proc.samples)),
	}
	for i, sample := range proc.samples {
		manifest.Samples[i] = ManifestEntry{Name: sample.Name, Bloom: filepath.Base(sample.BloomPath), Kmers: sample.NumKmers}
	}
	return manifest
}

// BuildBlooms runs a SequenceReader, BloomBuilder and BloomSink over the files and returns the samples in input order
func BuildBlooms(info *Info, files []string) ([]*Sample, error) {
	if info.Config == nil {
		return nil, errors.New("no config attached to the runtime info")
	}
	if info.OutDir != "" {
		if err := os.MkdirAll(info.OutDir, 0755); err != nil {
			return nil, err
		}
	}
	reader := NewSequenceReader(info)
	reader.Connect(files)
	builder := NewBloomBuilder(info)
	builder.Connect(reader)
	sink := NewBloomSink(info, len(files))
	sink.Connect(builder)

	pipeline := NewPipeline()
	pipeline.AddProcesses(reader, builder, sink)
	pipeline.Run()
	if err := info.Err(); err != nil {
		return nil, err
	}
	if info.OutDir != "" {
		if err := sink.Manifest().Dump(filepath.Join(info.OutDir, ManifestFile)); err != nil {
			return nil, err
		}
	}
	return sink.Samples(), nil
}

// LoadBlooms reads the bloom filters listed in the manifest of dir, in manifest order.
// The manifest and every filter must match the k, m, h and hash family of the config.
func LoadBlooms(dir string, cfg *config.Config) ([]*bloom.BloomFilter, []string, error) {
	manifest, err := LoadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, nil, err
	}
	if manifest.K != cfg.K || manifest.M != cfg.M || manifest.H != cfg.H || manifest.HashFamily != cfg.HashFamily {
		return nil, nil, errors.Errorf("bloom filters were built with k=%d m=%d h=%d %s, config has k=%d m=%d h=%d %s",
			manifest.K, manifest.M, manifest.H, manifest.HashFamily, cfg.K, cfg.M, cfg.H, cfg.HashFamily)
	}
	family, err := cfg.Family()
	if err != nil {
		return nil, nil, err
	}
	blooms := make([]*bloom.BloomFilter, len(manifest.Samples))
	names := make([]string, len(manifest.Samples))
	for i, entry := range manifest.Samples {
		bf, err := bloom.Load(filepath.Join(dir, entry.Bloom))
		if err != nil {
			return nil, nil, err
		}
		if bf.M() != cfg.M || bf.H() != cfg.H || bf.Family() != family {
			return nil, nil, errors.Errorf("bloom filter %v does not match the config", entry.Bloom)
		}
		blooms[i], names[i] = bf, entry.Name
	}
	return blooms, names, nil
}
