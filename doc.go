// Package usbserial connects to USB serial devices (FTDI, CP210x, CH34x,
// PL2303 and CDC-ACM class chips), negotiates OS-level access, opens the
// serial link with configurable line parameters and streams every received
// chunk into an observable message log.
//
// # Components
//
// A [Catalog] turns the devices of a [Transport] into [Endpoint] values, one
// per serial port. A [Manager] drives the connection lifecycle of each
// endpoint: it asks the [PermissionGate] for access, opens and configures
// the port and starts an [IOManager] that reads on its own goroutine. All of
// them publish into a [Store], the single source of truth that observers
// read through snapshots.
//
// # Basic Usage
//
//	store := usbserial.NewStore(4096)
//	gate := usbserial.NewPermissionGate(facility, usbserial.DefaultPermissionChannel, log)
//	catalog := usbserial.NewCatalog(transport, store, log)
//	manager := usbserial.NewManager(transport, gate, store, usbserial.DefaultManagerConfig(), log)
//	defer manager.Close()
//
//	endpoints, err := catalog.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//
//	cfg, _ := usbserial.NewLineConfig(usbserial.WithBaudRate(115200))
//	if err := manager.Connect(ctx, endpoints[0], cfg); err != nil {
//	    return err
//	}
//
// # Observing State
//
// Snapshots are immutable and replaced on every change. A subscription
// always holds the newest snapshot its observer has not read yet:
//
//	sub := store.Subscribe()
//	defer sub.Close()
//	for state := range sub.C() {
//	    for _, rec := range state.Records {
//	        data, _ := rec.Bytes()
//	        fmt.Printf("%d %s % X\n", rec.Seq, rec.Endpoint, data)
//	    }
//	}
//
// # Permissions
//
// When the process lacks access to a device, Connect issues one permission
// request and returns [ErrPermissionPending]. Call Connect again once the
// request has been granted, or set ManagerConfig.AwaitPermission to wait
// for the answer. A denied device fails fast with [ErrPermissionDenied]
// until [Manager.ForgetPermission] is called.
//
// # Error Handling
//
// Connect returns sentinel errors for errors.Is checks. Failures during
// the session lifecycle are also recorded on the published session as a
// [Failure] with its [FailureKind]:
//
//	if info, ok := store.Snapshot().Session(key); ok && info.LastError != nil {
//	    if info.LastError.Kind == usbserial.FailureRuntimeIO {
//	        // the device went away
//	    }
//	}
//
// # Default Configuration
//
//   - BaudRate: 19200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - SessionMode: single
//   - ReadMode: event
//   - ConfigurePolicy: ignore
//   - ReadBufferSize: 4096
//
// Concrete transports live in transport/sysfs (Linux sysfs and termios)
// and transport/bugst (go.bug.st/serial).
package usbserial
