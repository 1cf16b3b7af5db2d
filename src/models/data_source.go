package models

type DataSource string

const (
	SourceTradier DataSource = "tradier"
	SourcePolygon DataSource = "polygon"
	SourceFMP     DataSource = "fmp"

	// SourceDatabase marks display prices served from the last stored
	// record after every live provider failed.
	SourceDatabase DataSource = "database"
)
