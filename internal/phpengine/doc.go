// Package phpengine is the interpreter side of the call bridge.
//
// It models native PHP values (Zval, Array), converts them to and from
// bridge values, keeps a function table of native functions grouped into
// extensions, and runs the engine on a dedicated OS thread that drains the
// call channel:
//
//	engine, err := phpengine.NewEngine("8.3", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine.SetExtensions(phpengine.NewExtensionManager("8.3", &phpengine.ExtensionConfig{
//	    Required: []string{"standard", "callbacks"},
//	}, logger))
//
//	ch := bridge.NewChannel(phpengine.NewDispatcher(engine), bridge.WithThreadGuard(phpengine.OnThread))
//	engine.SetChannel(ch)
//
//	thread := phpengine.NewThread(engine, ch, 5*time.Millisecond, logger)
//	if err := thread.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer thread.Stop()
//
//	v, err := ch.QueueCall("strtoupper", []bridge.Value{bridge.String("hi")}).Wait()
package phpengine
