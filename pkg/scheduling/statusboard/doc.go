// Package statusboard shares worker pool status between processes through
// Redis.
//
// A Board is a workerpool.Reporter: plug it into Config.Reporter and the
// pool's manager publishes a snapshot on every tick. Any process pointing at
// the same Redis and key prefix can then list all live pools with Snapshot.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	board, err := statusboard.New(statusboard.Config{Redis: rdb})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		Name:          "search",
//		MaxWorkers:    30,
//		MinWorkers:    3,
//		QueueCapacity: 100,
//		Reporter:      board,
//	})
//
//	entries, err := board.Snapshot(ctx)
//
// Statuses expire after KeyTTL without a refresh, so a crashed process drops
// off the board on its own.
package statusboard
