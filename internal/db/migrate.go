package db

import "gorm.io/gorm"

type fullTextIndex struct {
	table   string
	name    string
	columns [2]string
}

var fullTextIndexes = []fullTextIndex{
	{table: "knowledge_articles", name: "idx_kb_fulltext", columns: [2]string{"title", "content"}},
	{table: "faq_entries", name: "idx_faq_fulltext", columns: [2]string{"question", "answer"}},
}

// Migrate creates the tables for models and the full-text indexes the
// retriever relies on when the dialect supports them.
func Migrate(gdb *gorm.DB, models ...any) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		return err
	}

	for _, ix := range fullTextIndexes {
		if !gdb.Migrator().HasTable(ix.table) {
			continue
		}
		switch gdb.Dialector.Name() {
		case "postgres":
			if err := gdb.Exec(
				"CREATE INDEX IF NOT EXISTS " + ix.name + " ON " + ix.table +
					" USING GIN (to_tsvector('simple', " + ix.columns[0] + " || ' ' || " + ix.columns[1] + "))",
			).Error; err != nil {
				return err
			}
		case "mysql":
			if gdb.Migrator().HasIndex(ix.table, ix.name) {
				continue
			}
			if err := gdb.Exec(
				"ALTER TABLE " + ix.table + " ADD FULLTEXT INDEX " + ix.name +
					" (" + ix.columns[0] + ", " + ix.columns[1] + ")",
			).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
