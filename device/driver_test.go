package device

import (
	"sort"
	"testing"
)

func TestDriverInfoListSorting(t *testing.T) {
	defer func(orig [MaxDrivers]*DriverInfo, count int) {
		registeredDrivers, driverCount = orig, count
	}(registeredDrivers, driverCount)
	driverCount = 0

	origlist := []*DriverInfo{
		{Order: DetectOrderNormal},
		{Order: DetectOrderLast},
		{Order: DetectOrderEarly},
	}

	for _, drv := range origlist {
		if err := RegisterDriver(drv); err != nil {
			t.Fatal(err)
		}
	}

	registeredList := DriverList()
	if exp, got := len(origlist), len(registeredList); got != exp {
		t.Fatalf("expected DriverList() to return %d entries; got %d", exp, got)
	}

	sort.Sort(registeredList)
	expOrder := []int{2, 0, 1}
	for i, exp := range expOrder {
		if registeredList[i] != origlist[exp] {
			t.Errorf("expected sorted entry %d to be %v; got %v", i, origlist[exp], registeredList[i])
		}
	}
}

func TestRegisterDriverCapacity(t *testing.T) {
	defer func(orig [MaxDrivers]*DriverInfo, count int) {
		registeredDrivers, driverCount = orig, count
	}(registeredDrivers, driverCount)
	driverCount = 0

	for i := 0; i < MaxDrivers; i++ {
		if err := RegisterDriver(&DriverInfo{}); err != nil {
			t.Fatalf("expected driver %d to be registered; got %v", i, err)
		}
	}

	if err := RegisterDriver(&DriverInfo{}); err != errTooManyDrivers {
		t.Fatalf("expected errTooManyDrivers; got %v", err)
	}

	if got := len(DriverList()); got != MaxDrivers {
		t.Fatalf("expected %d registered drivers; got %d", MaxDrivers, got)
	}
}
