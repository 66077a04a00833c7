package models

// AllModels lists every persisted entity for migrations, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&Role{},
		&Workflow{},
		&WorkflowStep{},
		&Version{},
		&ModerationCollection{},
		&ModerationRequest{},
		&ModerationRequestAction{},
		&ModerationRequestTreeNode{},
		&CollectionComment{},
		&RequestComment{},
	}
}
