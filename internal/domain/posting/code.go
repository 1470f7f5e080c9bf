package posting

import (
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/oklog/ulid/v2"
)

// CodeGenerator produces transaction codes of the form {prefix}{FY}-{ULID}
type CodeGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewCodeGenerator creates a generator. A nil entropy source uses the ulid default.
func NewCodeGenerator(entropy io.Reader) *CodeGenerator {
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	return &CodeGenerator{entropy: entropy}
}

// Next returns a new code for the scheme at time now
func (g *CodeGenerator) Next(scheme schema.NumberingScheme, fiscalYear int, now time.Time) (string, error) {
	g.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	code := scheme.Prefix
	if scheme.IncludeFiscalYear {
		code += strconv.Itoa(fiscalYear) + "-"
	}
	return code + id.String(), nil
}
