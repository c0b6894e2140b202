package storage

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-redis/redis/v9"
	"github.com/pkg/errors"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// DefaultRedisPrefix namespaces the keys when no prefix is configured
const DefaultRedisPrefix = "bigsi"

const delBatch = 1000

// Redis stores rows as redis strings, bit j of a row is colour j (most significant bit first,
// matching SETBIT). Missing row keys and short strings read as zero bits.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// OpenRedis connects to redis and checks the server answers
func OpenRedis(addrs []string, db int, prefix string) (*Redis, error) {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: addrs,
		DB:    db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, unavailable("ping", err)
	}
	log.Debugf("opened redis storage at %v with prefix %q", addrs, prefix)
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) paramsKey() string { return r.prefix + ":params" }

func (r *Redis) coloursKey() string { return r.prefix + ":colours" }

func (r *Redis) samplesKey() string { return r.prefix + ":samples" }

func (r *Redis) rowKey(i uint) string { return fmt.Sprintf("%s:row:%d", r.prefix, i) }

func (r *Redis) rowPattern() string { return r.prefix + ":row:*" }

func (r *Redis) headerKeys() []string {
	return []string{r.paramsKey(), r.coloursKey(), r.samplesKey()}
}

func (r *Redis) ctx() context.Context { return context.Background() }

// errNil drops redis.Nil, which only means a key is missing
func (r *Redis) errNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}

type redisHeader struct {
	params    Params
	hasParams bool
	colours   uint
	samples   uint
}

func (r *Redis) readHeader(c redis.Cmdable) (*redisHeader, error) {
	ctx := r.ctx()
	h := &redisHeader{}
	data, err := c.Get(ctx, r.paramsKey()).Bytes()
	switch {
	case err == redis.Nil:
	case err != nil:
		return nil, unavailable("read params", err)
	default:
		if err := msgpack.Unmarshal(data, &h.params); err != nil {
			return nil, unavailable("decode params", err)
		}
		h.hasParams = true
	}
	colours, err := c.Get(ctx, r.coloursKey()).Uint64()
	if err = r.errNil(err); err != nil {
		return nil, unavailable("read colours", err)
	}
	h.colours = uint(colours)
	samples, err := c.HLen(ctx, r.samplesKey()).Result()
	if err != nil {
		return nil, unavailable("read samples", err)
	}
	h.samples = uint(samples)
	return h, nil
}

// redisTx queues commands which run in one MULTI/EXEC block
type redisTx struct {
	r      *Redis
	tx     *redis.Tx
	header *redisHeader
	ops    []func(pipe redis.Pipeliner)
	// reset is set once Init drops the stored sample records, puts holds the staged ones
	reset bool
	puts  map[uint]string
}

func (t *redisTx) Init(p Params, numColours uint) error {
	ctx := t.r.ctx()
	var stale []string
	var cursor uint64
	for {
		keys, next, err := t.tx.Scan(ctx, cursor, t.r.rowPattern(), delBatch).Result()
		if err != nil {
			return unavailable("scan rows", err)
		}
		stale = append(stale, keys...)
		if cursor = next; cursor == 0 {
			break
		}
	}
	params, err := msgpack.Marshal(&p)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		for start := 0; start < len(stale); start += delBatch {
			end := start + delBatch
			if end > len(stale) {
				end = len(stale)
			}
			pipe.Del(ctx, stale[start:end]...)
		}
		pipe.Del(ctx, t.r.samplesKey())
		pipe.Set(ctx, t.r.paramsKey(), params, 0)
		pipe.Set(ctx, t.r.coloursKey(), numColours, 0)
	})
	t.header = &redisHeader{params: p, hasParams: true, colours: numColours}
	t.reset, t.puts = true, nil
	return nil
}

func (t *redisTx) SetRow(i uint, row *bitset.BitSet) error {
	if !t.header.hasParams || i >= t.header.params.M {
		return errors.Wrapf(ErrShapeMismatch, "row %d out of range [0, %d)", i, t.header.params.M)
	}
	if row.Len() != t.header.colours {
		return errors.Wrapf(ErrShapeMismatch, "row %d holds %d bits, expected %d", i, row.Len(), t.header.colours)
	}
	key, ctx := t.r.rowKey(i), t.r.ctx()
	if row.None() {
		t.ops = append(t.ops, func(pipe redis.Pipeliner) { pipe.Del(ctx, key) })
		return nil
	}
	data := encodeRow(row)
	t.ops = append(t.ops, func(pipe redis.Pipeliner) { pipe.Set(ctx, key, data, 0) })
	return nil
}

func (t *redisTx) ExtendRows(column *bitset.BitSet) error {
	if !t.header.hasParams {
		return errors.Wrap(ErrShapeMismatch, "matrix has not been initialised")
	}
	if column.Len() != t.header.params.M {
		return errors.Wrapf(ErrShapeMismatch, "column holds %d bits, matrix has %d rows", column.Len(), t.header.params.M)
	}
	ctx, colour := t.r.ctx(), t.header.colours
	var set []uint
	for i, ok := column.NextSet(0); ok; i, ok = column.NextSet(i + 1) {
		set = append(set, i)
	}
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		for _, i := range set {
			pipe.SetBit(ctx, t.r.rowKey(i), int64(colour), 1)
		}
		pipe.Set(ctx, t.r.coloursKey(), colour+1, 0)
	})
	t.header.colours++
	return nil
}

func (t *redisTx) PutSample(colour uint, name string) error {
	if colour > t.header.samples {
		return errors.Wrapf(ErrShapeMismatch, "sample colour %d leaves a gap after %d records", colour, t.header.samples)
	}
	if colour == t.header.samples {
		t.header.samples++
	}
	if t.puts == nil {
		t.puts = make(map[uint]string)
	}
	t.puts[colour] = name
	ctx := t.r.ctx()
	t.ops = append(t.ops, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, t.r.samplesKey(), strconv.FormatUint(uint64(colour), 10), name)
	})
	return nil
}

func (t *redisTx) NumColours() uint { return t.header.colours }

func (t *redisTx) NumSamples() uint { return t.header.samples }

// Samples reads the stored records on the watched connection and lays the staged ones over them
func (t *redisTx) Samples() ([]string, error) {
	samples := make([]string, t.header.samples)
	if !t.reset {
		records, err := t.tx.HGetAll(t.r.ctx(), t.r.samplesKey()).Result()
		if err != nil {
			return nil, unavailable("read samples", err)
		}
		if err := decodeSamples(records, samples); err != nil {
			return nil, err
		}
	}
	for colour, name := range t.puts {
		samples[colour] = name
	}
	return samples, nil
}

// Update is a method to run a write transaction, it fails if another writer commits first
func (r *Redis) Update(fn func(Tx) error) error {
	ctx := r.ctx()
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		header, err := r.readHeader(tx)
		if err != nil {
			return err
		}
		staged := &redisTx{r: r, tx: tx, header: header}
		if err := fn(staged); err != nil {
			return err
		}
		if len(staged.ops) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range staged.ops {
				op(pipe)
			}
			return nil
		})
		if err != nil {
			return unavailable("commit", err)
		}
		return nil
	}, r.headerKeys()...)
	if err == redis.TxFailedErr {
		return unavailable("commit", errors.New("another writer committed first"))
	}
	return err
}

// ReadRows is a method to read rows in one MULTI/EXEC block
func (r *Redis) ReadRows(indices []uint) ([]*bitset.BitSet, error) {
	ctx := r.ctx()
	var paramsCmd *redis.StringCmd
	var coloursCmd *redis.StringCmd
	rowCmds := make([]*redis.StringCmd, len(indices))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		paramsCmd = pipe.Get(ctx, r.paramsKey())
		coloursCmd = pipe.Get(ctx, r.coloursKey())
		for j, i := range indices {
			rowCmds[j] = pipe.Get(ctx, r.rowKey(i))
		}
		return nil
	})
	if err = r.errNil(err); err != nil {
		return nil, unavailable("read rows", err)
	}
	var p Params
	if data, err := paramsCmd.Bytes(); err == nil {
		if err := msgpack.Unmarshal(data, &p); err != nil {
			return nil, unavailable("decode params", err)
		}
	} else if err != redis.Nil {
		return nil, unavailable("read params", err)
	}
	colours, err := coloursCmd.Uint64()
	if err = r.errNil(err); err != nil {
		return nil, unavailable("read colours", err)
	}
	out := make([]*bitset.BitSet, len(indices))
	for j, i := range indices {
		if i >= p.M {
			return nil, errors.Wrapf(ErrShapeMismatch, "row %d out of range [0, %d)", i, p.M)
		}
		data, err := rowCmds[j].Bytes()
		if err = r.errNil(err); err != nil {
			return nil, unavailable("read row", err)
		}
		out[j] = decodeRow(data, uint(colours))
	}
	return out, nil
}

// NumRows returns the number of rows
func (r *Redis) NumRows() (uint, error) {
	h, err := r.readHeader(r.client)
	if err != nil {
		return 0, err
	}
	return h.params.M, nil
}

// NumColours returns the row length
func (r *Redis) NumColours() (uint, error) {
	h, err := r.readHeader(r.client)
	if err != nil {
		return 0, err
	}
	return h.colours, nil
}

// Samples returns the sample records indexed by colour
func (r *Redis) Samples() ([]string, error) {
	records, err := r.client.HGetAll(r.ctx(), r.samplesKey()).Result()
	if err != nil {
		return nil, unavailable("read samples", err)
	}
	samples := make([]string, len(records))
	if err := decodeSamples(records, samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// decodeSamples fills samples from the colour -> name hash
func decodeSamples(records map[string]string, samples []string) error {
	for field, name := range records {
		colour, err := strconv.ParseUint(field, 10, 64)
		if err != nil || colour >= uint64(len(samples)) {
			return unavailable("read samples", errors.Errorf("bad sample record %q", field))
		}
		samples[colour] = name
	}
	return nil
}

// Params returns the stored index parameters
func (r *Redis) Params() (Params, bool, error) {
	h, err := r.readHeader(r.client)
	if err != nil {
		return Params{}, false, err
	}
	return h.params, h.hasParams, nil
}

// DeleteAll is a method to remove every key under the prefix
func (r *Redis) DeleteAll() error {
	return r.Update(func(tx Tx) error {
		staged := tx.(*redisTx)
		if err := staged.Init(Params{}, 0); err != nil {
			return err
		}
		ctx := r.ctx()
		staged.ops = append(staged.ops, func(pipe redis.Pipeliner) {
			pipe.Del(ctx, r.headerKeys()...)
		})
		return nil
	})
}

// Close is a method to close the client connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// encodeRow packs a row MSB first, so byte j bit 7 is colour 8j
func encodeRow(row *bitset.BitSet) []byte {
	data := make([]byte, (row.Len()+7)/8)
	for i, word := range row.Words() {
		for b := 0; b < 8; b++ {
			j := i*8 + b
			if j >= len(data) {
				break
			}
			data[j] = bits.Reverse8(uint8(word >> (8 * b)))
		}
	}
	return data
}

func decodeRow(data []byte, colours uint) *bitset.BitSet {
	words := make([]uint64, (colours+63)/64)
	for j, v := range data {
		w := j / 8
		if w >= len(words) {
			break
		}
		words[w] |= uint64(bits.Reverse8(v)) << (8 * (j % 8))
	}
	if rem := colours % 64; rem != 0 {
		words[len(words)-1] &= (uint64(1) << rem) - 1
	}
	return bitset.FromWithLength(colours, words)
}
