// Package collector implements the usage translator and the region poll
// loop.
//
// The Collector owns one limits.Checker per configured region for the
// process lifetime. Each cycle walks the regions in configuration order;
// per region it asks the checker to refresh its usage snapshot, then
// translates the returned report into gauge updates through the shared
// metrics.Registry. Every per-region pass is timed by the
// update_processing_seconds summary so slow regions are individually
// visible. Any error, whether a backend failure or a malformed report
// shape, is logged, counted, and isolated to that region: the rest of the
// cycle and all later cycles proceed.
//
// Translation splits each service's limits into two groups. Limit names
// containing "on-demand" (case-insensitive) form the EC2 on-demand group:
// when the service is EC2 they are folded into the single
// ec2_running_on_demand_ec2_instances series, labeled per instance type
// ("total" for the aggregate limit itself, otherwise the dotted token in
// the limit name, e.g. m5.large). Every other limit is published under its
// own normalized path with labels {region, type}, where type is "limit"
// for the ceiling and, for usage values, either "current" or the usage
// entry's resource identifier.
//
// Example usage:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	coll, err := collector.New(cfg.Regions, factory, cfg.Overrides, reg, log)
//	if err != nil {
//		log.Error("Failed to build collector", "error", err)
//		os.Exit(1)
//	}
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	coll.Start(ctx, cfg.GetRefreshInterval())
//
// Start runs one cycle immediately and then one per interval until the
// context is cancelled, so the loop is embeddable and stoppable in tests
// via RunCycle and a cancelled context.
package collector
