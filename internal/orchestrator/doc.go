// Package orchestrator drives registered tasks through a three phase
// lifecycle according to a hook expression.
//
// # Overview
//
// Every task registers one Subscription bound to a hook. A publish call
// runs in two stages:
//
//	pre_publish barrier (every subscription) → compound hook 1 → compound hook 2 → ...
//
// Within a stage all phases run concurrently and the engine waits until
// every one of them has settled before moving on. A compound hook such as
// "styles.scripts" runs the publish phase of all subscriptions on both
// hooks as one stage; "styles,scripts" runs two stages in order.
//
// # Deferreds
//
// Each phase activation is represented by a Deferred. The handler (or any
// code holding the subscription name) settles it exactly once through
// Deferred.Resolve, Deferred.Reject or the Engine equivalents. Settling
// twice returns ErrAlreadySettled.
//
// # Failure
//
// Publish validates the whole expression before anything runs and fails
// with *MissingSubscriptionError when a hook has no subscription. A
// rejected phase lets its siblings in the same stage finish; the stage
// then fails with every rejection combined and later stages are skipped.
//
// # Example
//
//	engine := orchestrator.NewEngine(orchestrator.WithLogger(logger))
//	_, err := engine.Subscribe("styles", "styles", orchestrator.Handlers{
//	    Publish: func(ctx context.Context, d *orchestrator.Deferred) {
//	        d.Resolve()
//	    },
//	})
//	err = engine.Publish(ctx, "clean,styles.scripts")
package orchestrator
