/*
Package cmd is a placeholder for the cmd directory itself; each
subdirectory (currently cmd/overwitchdemo) is its own command package.
*/
package cmd
