// Package axosyslog runs log messages through FilterX rules.
//
// The evaluation runtime is in package 'filterx', the pipe machinery
// in 'logpipe' and 'pipeline', and rule compilers in 'interpreters'.
// Destinations are in 'dest' (built on 'logthrdest'), sources in
// 'sio', and the daemon and a configuration tool are in `cmd`.
package axosyslog
