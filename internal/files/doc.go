// Package files discovers events files on disk.
//
// A configured events source may name a single file, a directory or a glob
// pattern; Discovery.Resolve expands them, in order, to the concrete files
// the ingest reader concatenates.
//
// Example usage:
//
//	discovery := files.NewDiscovery(paths.DataDir, ".csv", ".xlsx")
//	found, err := discovery.Resolve([]string{"estimates/", "revisions_*.csv"})
//	if err != nil {
//	    return err
//	}
//	table, sources, err := reader.ReadFiles(ctx, files.Paths(found))
package files
