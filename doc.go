/*
Package overwitch is the top-level package of the overwitch-go module.
It holds no code of its own; see package core for the composite object
a host audio adapter drives, or cmd/overwitchdemo for a runnable
example built on it.
*/
package overwitch
