package posting

import (
	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
)

// Approvers returns the distinct actor ids recorded as approvals on h.
// Stored metadata decodes lists as []any, in-memory headers carry []string.
func Approvers(h *schema.TransactionHeader) []uuid.UUID {
	var raw []string
	switch v := h.Metadata[MetaApprovals].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// RecordApproval adds approver to the approvals of h.
// It returns false when approver has already approved.
func RecordApproval(h *schema.TransactionHeader, approver uuid.UUID) bool {
	ids := Approvers(h)
	for _, id := range ids {
		if id == approver {
			return false
		}
	}
	ids = append(ids, approver)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	h.SetMetadata(MetaApprovals, out)
	return true
}

// ClearApprovals drops every recorded approval
func ClearApprovals(h *schema.TransactionHeader) {
	delete(h.Metadata, MetaApprovals)
}

// ApprovalCount counts the approvals given by actors other than the creator
func ApprovalCount(h *schema.TransactionHeader) int {
	n := 0
	for _, id := range Approvers(h) {
		if id != h.CreatedBy {
			n++
		}
	}
	return n
}
