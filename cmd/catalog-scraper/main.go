// Package main provides the catalog-scraper CLI.
//
// Usage:
//
//	catalog-scraper crawl [--fresh] [--skip-completed]
//	catalog-scraper watch --interval 24h
//	catalog-scraper export
//
// See --help for all available commands.
package main

func main() {
	Execute()
}
