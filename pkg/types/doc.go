// Package types defines the journal entry schema, backup records, the
// notification sink, configuration, and the standard errors shared by the
// moji storage components.
package types
