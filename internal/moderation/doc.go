// Package moderation scores chat messages for abuse risk. Classification is
// a pure function of a ModerationInput snapshot: the same input always yields
// the same ModerationResult, and nothing here performs I/O.
package moderation
