package svcsched

// Version is the current version of the go-svcsched library
const Version = "1.0.0"
