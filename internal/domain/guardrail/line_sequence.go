package guardrail

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/erp/platform/internal/domain/shared"
)

// LineSequenceCheck requires line numbers to be unique and sequential from 1.
// A transaction with no line numbers at all is numbered in submission order.
type LineSequenceCheck struct{}

// Name returns the rule name
func (LineSequenceCheck) Name() string { return RuleLineSequence }

// Applies to transactions with lines
func (LineSequenceCheck) Applies(req *Request) bool {
	return req.Transaction != nil && len(req.Transaction.Lines) > 0 && req.Operation != OperationStatus
}

// Run executes the check
func (LineSequenceCheck) Run(_ context.Context, req *Request) (Result, error) {
	var res Result
	lines := req.Transaction.Lines

	missing := 0
	for _, l := range lines {
		if l.LineNumber == 0 {
			missing++
		}
	}
	if missing == len(lines) {
		for i := range lines {
			lines[i].LineNumber = i + 1
		}
		res.fix(Autofix{Rule: RuleLineSequence, Field: "lines[].line_number", From: "unset", To: fmt.Sprintf("1..%d", len(lines))})
		return res, nil
	}

	numbers := make([]int, 0, len(lines))
	seen := make(map[int]bool, len(lines))
	for i, l := range lines {
		if l.LineNumber <= 0 {
			res.block(shared.Violation{
				Rule: RuleLineSequence, Code: shared.CodeLineSequence,
				Field:    fmt.Sprintf("lines[%d].line_number", i),
				Message:  "line number must be positive when other lines are numbered",
				Value:    strconv.Itoa(l.LineNumber),
				Expected: ">= 1",
			})
			continue
		}
		if seen[l.LineNumber] {
			res.block(shared.Violation{
				Rule: RuleLineSequence, Code: shared.CodeLineSequence,
				Field:   fmt.Sprintf("lines[%d].line_number", i),
				Message: "duplicate line number",
				Value:   strconv.Itoa(l.LineNumber),
			})
			continue
		}
		seen[l.LineNumber] = true
		numbers = append(numbers, l.LineNumber)
	}
	if len(res.Violations) > 0 {
		return res, nil
	}

	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			res.block(shared.Violation{
				Rule: RuleLineSequence, Code: shared.CodeLineSequence,
				Field:    "lines[].line_number",
				Message:  "line numbers must be sequential without gaps",
				Value:    strconv.Itoa(n),
				Expected: strconv.Itoa(i + 1),
			})
			break
		}
	}
	return res, nil
}
