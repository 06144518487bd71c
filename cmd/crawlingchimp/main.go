// Package main provides the entry point for the CrawlingChimp CLI.
//
// CrawlingChimp crawls a website breadth-first, stays on the start URL's
// host, honours robots.txt and can authenticate before it starts. The
// discovered links are written to a file and a summary is printed.
//
// Usage:
//
//	crawlingchimp -u https://example.com -f links.txt
//	crawlingchimp --create-cred-template
//	crawlingchimp history example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
