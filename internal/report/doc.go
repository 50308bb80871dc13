// Package report formats query results and persists them.
//
// Format projects a raw graph result onto the headers a query definition
// declares. A query with no rows yields ErrNoResult, which is not a failure:
// nothing is written for it.
//
// Writer saves one ';'-delimited file per query, named
//
//	<description>_<suffix>_<timestamp>.csv
//
// where suffix is a short random disambiguator and timestamp is shared by
// every file of one run. At the end of the run Merge collects the run's files
// into BloodCheck-Report-<timestamp>.xlsx, one sheet per query, with
// auto-sized columns and a frozen header row.
//
// Publishers copy finished artifacts elsewhere; S3Publisher uploads them to
// an S3-compatible bucket.
package report
