// Package registry provides a keyed factory for wwlock Mutexes. Resource
// owners that address their locks by string key get one stable Mutex per key
// and a deterministic enumeration usable with the bulk acquisition helper.
package registry
