package store

import "fmt"

// Redis key pattern helpers
//
// Every bucket is one Redis hash, namespaced so that several deployments can
// share a Redis server.
//
// Key pattern: researchtown:{namespace}:{bucket}

// BucketKey returns the Redis key for a bucket hash.
// Pattern: researchtown:{namespace}:{bucket}
func BucketKey(namespace, bucket string) string {
	return fmt.Sprintf("researchtown:%s:%s", namespace, bucket)
}

// RunBucket returns the bucket name for one artifact kind inside a run scope.
// Pattern: {run}:{kind}
func RunBucket(run, kind string) string {
	return fmt.Sprintf("%s:%s", run, kind)
}
