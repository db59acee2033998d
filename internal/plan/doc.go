// Package plan loads load test plans from YAML, JSON or JSONC files.
//
// A plan names the test, sets its duration and concurrency, and describes
// the rate pattern and the weighted scenarios:
//
//	name: checkout
//	target: https://api.example.com
//	duration: 5m
//	warmup: 30s
//	pattern:
//	  type: ramp
//	  start: 10
//	  end: 200
//	  duration: 5m
//	scenarios:
//	  - name: browse
//	    weight: 3
//	    url: /products
//	  - name: buy
//	    method: POST
//	    url: /orders
//	    body_template: '{"id":"{{uuid}}"}'
//
// Durations are Go duration strings or numbers of seconds.
package plan
