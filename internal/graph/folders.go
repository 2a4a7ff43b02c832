package graph

import (
	"context"
	"log/slog"
)

// ListFolders enumerates the folder tree under rootID, depth-first in
// pre-order. The first entry is always the root itself. A subfolder whose
// listing fails contributes no entries; the failure is logged and the walk
// continues with the next sibling.
func (c *Client) ListFolders(ctx context.Context, rootID, rootName string) []FolderInfo {
	folders := []FolderInfo{{
		ID:         rootID,
		Name:       rootName,
		ParentPath: "",
		FullPath:   rootName,
	}}

	folders = c.collectSubfolders(ctx, rootID, rootName, folders)

	c.logger.Info("enumerated folders",
		slog.String("root_id", rootID),
		slog.Int("folder_count", len(folders)),
	)

	return folders
}

// collectSubfolders appends every folder beneath folderID to acc.
func (c *Client) collectSubfolders(ctx context.Context, folderID, parentPath string, acc []FolderInfo) []FolderInfo {
	if ctx.Err() != nil {
		return acc
	}

	children, err := c.ListChildren(ctx, folderID)
	if err != nil {
		c.logger.Warn("listing folder children failed, skipping branch",
			slog.String("folder_id", folderID),
			slog.String("path", parentPath),
			slog.String("error", err.Error()),
		)

		return acc
	}

	for _, child := range normalizeChildren(children, c.logger) {
		if !child.IsFolder {
			continue
		}

		fullPath := parentPath + "/" + child.Name
		acc = append(acc, FolderInfo{
			ID:         child.ID,
			Name:       child.Name,
			ParentPath: parentPath,
			FullPath:   fullPath,
		})

		acc = c.collectSubfolders(ctx, child.ID, fullPath, acc)
	}

	return acc
}
