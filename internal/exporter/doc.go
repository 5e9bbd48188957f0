// Package exporter writes loaded estimate arrays to CSV and XLSX.
//
// The CSV export uses a long layout, one record per cell:
//
//	column,num_quarters,dtype,record,effective_date,date,asset,value
//	estimate,1,float64,baseline,,2024-01-02,A,1.5
//	estimate,1,float64,overwrite,2024-01-10,2024-01-02,A,1.25
//
// A baseline record is the cell as seen from the last date. An overwrite
// record replaces the cell for every window that ends before its
// effective_date.
//
// The XLSX export holds a summary sheet, one baseline sheet per column with
// dates down and assets across, and an adjustments sheet.
//
// Example usage:
//
//	exp := exporter.NewArrayExporter(paths, logger)
//	path, err := exp.Export(exporter.Dataset{Dates: dates, Assets: assets, Arrays: arrays},
//	    exporter.FormatXLSX, "estimates.xlsx")
package exporter
