package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Document{}, // Must be first - content tables reference it
		&TextContent{},
		&ImageContent{},
		&AudioContent{},
		&Embedding{},
		&IngestOutbox{},
	}
}
