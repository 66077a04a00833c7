package models

// ModerationRequestTreeNode records where a request sits in the nesting of
// versions added to a collection. The same request can appear under several
// parents when a child version is reachable from more than one root.
type ModerationRequestTreeNode struct {
	ID                  uint                       `gorm:"primaryKey" json:"id"`
	CollectionID        uint                       `gorm:"not null;index" json:"collection_id"`
	ModerationRequestID uint                       `gorm:"not null;uniqueIndex:idx_tree_request_parent" json:"moderation_request_id"`
	ModerationRequest   *ModerationRequest         `gorm:"foreignKey:ModerationRequestID" json:"moderation_request,omitempty"`
	ParentID            *uint                      `gorm:"uniqueIndex:idx_tree_request_parent" json:"parent_id"`
	Parent              *ModerationRequestTreeNode `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
}

// IsRoot reports whether the node was added directly rather than discovered
// as a moderated child.
func (n *ModerationRequestTreeNode) IsRoot() bool {
	return n.ParentID == nil
}
