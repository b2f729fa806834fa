// Package storage persists generated images without ever overwriting a file.
//
// A save either follows the caller's path hint or, when auto-save is on,
// synthesizes {SaveDir}/{tool}-{YYYY-MM-DD}-{HH-MM-SS}.{ext}. Existing files
// push the name to name_1.ext, name_2.ext and so on. The final create is
// exclusive, so two writers in the same process never clobber each other;
// no cross-process locking is attempted.
package storage
