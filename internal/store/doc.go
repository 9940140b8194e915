// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the path-keyed workspace file store backing the
// file tools (read_file, write_file, list_files, delete_file, file_exists,
// search_replace).
//
// Files live in a single SQLite database rather than on the host
// filesystem: the store holds model-generated content, and a flat key-value
// table with enforced size caps keeps that content from touching real
// paths. Paths are virtual - "notes/todo.md" is a key, not a location.
package store
