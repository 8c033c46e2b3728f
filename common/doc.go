// Package common provides fingerprinting, perceptual image hashing and cached feature reader/writer
// clients shared by the submit, lookup and gather packages.
//
// You might be thinking: I know, I'll make a common pool of buckets that all the codes can use!
// The problem is that if you call the bucket's Close() method in your code (and you should call it
// somewhere) then it stops working for all the other code that holds the same instance. Buckets are
// created as one-offs, as needed. Feature readers and writers have no such lifecycle and are cached.
package common
