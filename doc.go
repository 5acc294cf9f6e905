// Package mml2svg converts MathML to SVG by driving a long-lived XSLT
// engine (Saxon running a MathML-to-SVG stylesheet) over its standard
// streams.
//
// Starting a JVM and compiling the stylesheet costs seconds; converting one
// formula costs milliseconds. A Manager keeps one engine warm and feeds it
// jobs one at a time.
//
// # Quick Start
//
// Create a manager, convert MathML, and stop it when done:
//
//	mgr, err := mml2svg.NewManager(mml2svg.WithEngine(mml2svg.EngineConfig{
//	    SaxonJar:   "/opt/saxon/saxon-he.jar",
//	    Stylesheet: "/opt/pmml2svg/pmml2svg.xsl",
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
//
//	res, err := mgr.Convert(ctx, mml2svg.Document(`<math>...</math>`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("formula.svg", res.Output, 0o644)
//
// The engine is launched lazily on the first Convert. Call Start to pay the
// startup cost up front.
//
// # Engine Protocol
//
// Each job is framed on the engine's standard input:
//
//	%%mml2svg job=<token>
//	<math>...</math>
//	%%mml2svg end=<token>
//
// The stylesheet echoes the token to close the job on both output streams:
//
//	stdout: %%mml2svg done=<token> status=ok
//	stderr: %%mml2svg done=<token>
//
// Everything on stdout before the terminator is the SVG. Everything on
// stderr before the sentinel is the job's diagnostics. The marker prefix is
// passed to the stylesheet as the mml2svgMarker parameter and can be changed
// with WithMarker.
//
// # Diagnostics
//
// The engine logs asynchronously, so a line written late by job N can
// appear after job N's sentinel. Such lines are kept and reported with job
// N+1, flagged Carried. Carried errors never fail the job that receives
// them.
//
// # Errors
//
// Documents that are empty, not UTF-8 after decoding, or that contain a
// marker line fail with ErrEmptyDocument or ErrInvalidDocument and never
// reach the engine. Anything that fails after a job was written is a
// *JobError matching ErrTimeout, ErrEngine or ErrProtocol; the engine is
// then discarded and replaced on the next call. Use KindOf to branch:
//
//	switch mml2svg.KindOf(err) {
//	case mml2svg.KindInvalid:
//	    // bad input
//	case mml2svg.KindTimeout:
//	    // engine wedged, already replaced
//	}
//
// # Parallel Processing
//
// A Manager runs one engine. For throughput, use a Pool of several:
//
//	pool, err := mml2svg.NewPool(mml2svg.ResolvePoolSize(0), opts...)
//	defer pool.Stop()
//	res, err := pool.Convert(ctx, doc)
//
// # Metrics
//
// WithRegisterer exports job counts, durations and restarts to Prometheus.
package mml2svg
