package graph

import "time"

// Item is a OneDrive drive item normalized from the Graph API response.
type Item struct {
	ID           string
	Name         string
	ParentID     string
	ParentPath   string
	Size         int64
	ETag         string
	IsFolder     bool
	IsPackage    bool // OneNote notebooks; never treated as folders
	MimeType     string
	WebURL       string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	ModifiedBy   string
	QuickXorHash string
}

// FolderInfo is one node of the enumerated folder tree. FullPath is always
// ParentPath + "/" + Name, except at the root where ParentPath is empty and
// FullPath equals Name.
type FolderInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ParentPath string `json:"parentPath"`
	FullPath   string `json:"fullPath"`
}

// UploadFile is one decrypted file to upload.
type UploadFile struct {
	Name     string
	MimeType string
	Content  []byte
}

// DeleteOutcome is the tagged result of deleting one item: Err is nil on
// success.
type DeleteOutcome struct {
	ID  string
	Err error
}

// DeleteFailure is a failed deletion as reported to callers.
type DeleteFailure struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BatchDeleteResult partitions delete outcomes. Callers must consume both
// fields; deletion is not all-or-nothing.
type BatchDeleteResult struct {
	SuccessfulIDs []string
	Failures      []DeleteFailure
}

// partitionOutcomes splits tagged outcomes once, preserving input order.
func partitionOutcomes(outcomes []DeleteOutcome) BatchDeleteResult {
	res := BatchDeleteResult{
		SuccessfulIDs: make([]string, 0, len(outcomes)),
		Failures:      []DeleteFailure{},
	}

	for _, o := range outcomes {
		if o.Err == nil {
			res.SuccessfulIDs = append(res.SuccessfulIDs, o.ID)
			continue
		}

		res.Failures = append(res.Failures, DeleteFailure{ID: o.ID, Message: o.Err.Error()})
	}

	return res
}

// User is the signed-in user's Graph profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Drive is the signed-in user's default drive.
type Drive struct {
	ID         string
	Name       string
	DriveType  string
	OwnerName  string
	QuotaUsed  int64
	QuotaTotal int64
}
