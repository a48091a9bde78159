package models

import (
	"log"

	"bitbucket.org/mmdatafocus/statements_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Statement{}, &StatementLineItem{},
		&OrderRecord{}, &OrderLine{},
		&Vendor{},
		&Correction{}, &ItemAlias{},
		&ReceiptHistory{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
