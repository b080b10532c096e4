package gitlab

import (
	"fmt"
	"strings"
)

// zeroSHA is what GitLab puts in the "after" field when a branch is deleted.
const zeroSHA = "0000000000000000000000000000000000000000"

// PushEvent is the subset of GitLab's push webhook payload the relay needs.
// It arrives from an untrusted source; anything beyond these fields is ignored.
type PushEvent struct {
	ObjectKind  string  `json:"object_kind"`
	Ref         string  `json:"ref"`
	Before      string  `json:"before"`
	After       string  `json:"after"`
	CheckoutSHA string  `json:"checkout_sha"`
	UserName    string  `json:"user_name"`
	ProjectID   int64   `json:"project_id"`
	Project     Project `json:"project"`
}

// Project identifies the repository a push belongs to.
type Project struct {
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// BranchName strips the refs/heads/ prefix from the pushed ref.
func (e *PushEvent) BranchName() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

// IsDelete reports whether this push removed the branch. GitLab sends the
// all-zero SHA in "after" and nulls checkout_sha for deletions.
func (e *PushEvent) IsDelete() bool {
	return e.After == zeroSHA || e.CheckoutSHA == ""
}

// Desc names the push for log lines.
func (e *PushEvent) Desc() string {
	return fmt.Sprintf("%s@%s", e.Project.PathWithNamespace, e.BranchName())
}
