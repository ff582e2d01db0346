package join

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("join")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// MissingPolicy decides what happens to requested keys without any document
type MissingPolicy string

const (
	MissingFail        MissingPolicy = "fail"          // abort with RetCKeyNotFound
	MissingWarnAndSkip MissingPolicy = "warn-and-skip" // log a warning and omit the key
)

// ParseMissingPolicy converts a flag value to a MissingPolicy
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MissingFail, MissingWarnAndSkip:
		return p, nil
	case "skip", "warn":
		return MissingWarnAndSkip, nil
	default:
		return "", fmt.Errorf("invalid missing key policy %q (expected fail or warn-and-skip)", s)
	}
}

// Options configure a lookup or range extraction
type Options struct {
	KeyField    string        // name of the key field in output objects (default "id")
	Missing     MissingPolicy // policy for keys without documents (default fail)
	Parallelism int           // number of keys resolved concurrently
	WindowSize  int           // number of keys resolved before their objects are written
}

// DefaultOptions returns the default query options
func DefaultOptions() Options {
	return Options{
		KeyField:    common.DefaultKeyField,
		Missing:     MissingFail,
		Parallelism: common.DefaultParallelism,
		WindowSize:  1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KeyField == "" {
		o.KeyField = d.KeyField
	}
	if o.Missing == "" {
		o.Missing = d.Missing
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.WindowSize <= 0 {
		o.WindowSize = d.WindowSize
	}
	return o
}

// --------------------------------------------------------------------------
// Query state and statistics
// --------------------------------------------------------------------------

// State is the lifecycle state of a query
//
//	Opened -> Scanning -> Emitting -> Closed
//	              \           \
//	               +-----------+--> Failed
type State int

const (
	StateOpened State = iota
	StateScanning
	StateEmitting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "Opened"
	case StateScanning:
		return "Scanning"
	case StateEmitting:
		return "Emitting"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Stats describe a finished query
type Stats struct {
	State     State         `json:"state"`
	Types     []string      `json:"types"`     // declared types at query start
	Requested uint64        `json:"requested"` // keys requested (lookup) or expected (range)
	Emitted   uint64        `json:"emitted"`   // objects written
	Missing   uint64        `json:"missing"`   // requested keys without documents
	Corrupt   uint64        `json:"corrupt"`   // keys omitted because of corrupt payloads
	Duration  time.Duration `json:"duration"`
}

func (s *Stats) fail(err error) (Stats, error) {
	s.State = StateFailed
	return *s, err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// skeletonTypes returns the declared types of st, rejecting a type that
// collides with the key field of the output objects
func skeletonTypes(st store.IStore, keyField string) ([]string, error) {
	types, err := st.DeclaredTypes()
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if t == keyField {
			return nil, store.NewError(store.RetCInvalidOperation,
				fmt.Sprintf("document type %q collides with the key field of the output", t))
		}
	}
	return types, nil
}

// appendObject appends the joined object of one key and a trailing newline to dst.
// payloads[i] holds the payloads of types[i], they are copied verbatim.
func appendObject(dst []byte, keyField string, key document.Key, types []string, payloads [][][]byte) []byte {
	dst = append(dst, '{')
	dst = appendString(dst, keyField)
	dst = append(dst, ':')
	dst = key.AppendJSON(dst)
	for i, t := range types {
		dst = append(dst, ',')
		dst = appendString(dst, t)
		dst = append(dst, ':', '[')
		for j, p := range payloads[i] {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = append(dst, p...)
		}
		dst = append(dst, ']')
	}
	return append(dst, '}', '\n')
}

func appendString(dst []byte, s string) []byte {
	b, _ := json.Marshal(s) // marshalling a string cannot fail
	return append(dst, b...)
}
