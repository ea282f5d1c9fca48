package cli

// Version is the current version of goextract.
const Version = "0.2.0"
